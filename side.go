package fin

import (
	"encoding/json"
	"fmt"
)

// Side names the token a pool holds. Base-side pools offer the base denom
// and are consumed by quote offers; quote-side pools the reverse.
type Side uint8

const (
	SideBase Side = iota
	SideQuote
)

func (s Side) Opposite() Side {
	if s == SideBase {
		return SideQuote
	}
	return SideBase
}

func (s Side) String() string {
	if s == SideBase {
		return "base"
	}
	return "quote"
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "base":
		*s = SideBase
	case "quote":
		*s = SideQuote
	default:
		return fmt.Errorf("invalid side %q", str)
	}
	return nil
}
