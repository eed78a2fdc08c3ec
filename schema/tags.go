package schema

import (
	"strconv"
	"strings"

	"github.com/zmem-org/ZMEM/errs"
)

// fieldTag is the parsed form of a `zmem:"..."` struct tag.
type fieldTag struct {
	skip      bool
	strlen    int
	hasStrlen bool
	isTag     bool
	isVariant bool
	variant   uint64
}

// parseFieldTag parses the zmem struct tag on one field. An empty tag is
// valid and means "default classification applies".
func parseFieldTag(raw string) (fieldTag, error) {
	var ft fieldTag
	if raw == "" {
		return ft, nil
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "-":
			ft.skip = true
		case part == "tag":
			ft.isTag = true
		case strings.HasPrefix(part, "strlen="):
			n, err := strconv.Atoi(strings.TrimPrefix(part, "strlen="))
			if err != nil || n <= 0 {
				return ft, errs.ErrInvalidFixedTag
			}
			ft.strlen = n
			ft.hasStrlen = true
		case strings.HasPrefix(part, "variant="):
			n, err := strconv.ParseUint(strings.TrimPrefix(part, "variant="), 10, 64)
			if err != nil {
				return ft, errs.ErrInvalidFixedTag
			}
			ft.isVariant = true
			ft.variant = n
		case part == "":
			// tolerate stray commas
		default:
			return ft, errs.ErrInvalidFixedTag
		}
	}

	return ft, nil
}
