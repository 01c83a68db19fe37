package planner

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Mode selects how the mirror is driven.
type Mode int

const (
	// Loop runs cycles until the process is stopped.
	Loop Mode = iota
	// Once runs a single cycle.
	Once
	// Listing prints the copy and delete lists without touching the replica.
	Listing
)

var modeToString = map[Mode]string{
	Loop:    "loop",
	Once:    "once",
	Listing: "listing",
}
var stringToMode = map[string]Mode{}

func init() {
	stringToMode = util.InvertMap(modeToString)
}

func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_mode(%d)", m)
}

// ParseMode parses a string and returns the corresponding Mode.
func ParseMode(s string) (Mode, error) {
	if mode, ok := stringToMode[s]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("invalid mode: %q. Must be 'loop', 'once' or 'listing'", s)
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Mode should be a string, got %s", data)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
