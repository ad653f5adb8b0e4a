package relay

import (
	"fmt"
	"log"
	"reflect"
	"strings"
)

// UserMode is the per-client mode set. Bounded to what the protocol
// actually uses: invisibility, server notices, operator status, away
// (mirrored from the AWAY command rather than settable directly), and
// the wallops subscription flag.
type UserMode struct {
	Invisible    bool `mode:"i" desc:"invisible"`
	ServerNotice bool `mode:"s" desc:"receives server notices"`
	Operator     bool `mode:"o" desc:"IRC operator"`
	Wallops      bool `mode:"w" desc:"receives wallops"`
	Away         bool `mode:"a" desc:"marked away"`
}

// ParseModeString applies an IRC mode string such as "+iw-a" to m,
// returning the first unrecognized mode character encountered.
func (m *UserMode) ParseModeString(modeString string) error {
	add := true
	var unknown rune
	for _, ch := range modeString {
		switch ch {
		case '+':
			add = true
		case '-':
			add = false
		default:
			if err := m.setModeByChar(ch, add); err != nil && unknown == 0 {
				log.Printf("unsupported user mode %q in %q", ch, modeString)
				unknown = ch
			}
		}
	}
	if unknown != 0 {
		return fmt.Errorf("no field for mode %c", unknown)
	}
	return nil
}

func (m *UserMode) setModeByChar(mode rune, value bool) error {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(mode) {
			val.Field(i).SetBool(value)
			return nil
		}
	}
	return fmt.Errorf("no field for mode %c", mode)
}

// String renders the set modes as "+iw" (empty string if none set).
func (m *UserMode) String() string {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	var flags strings.Builder
	for i := 0; i < val.NumField(); i++ {
		if val.Field(i).Bool() {
			flags.WriteString(typ.Field(i).Tag.Get("mode"))
		}
	}
	if flags.Len() == 0 {
		return ""
	}
	return "+" + flags.String()
}

func (m *UserMode) HasMode(mode rune) bool {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(mode) {
			return val.Field(i).Bool()
		}
	}
	return false
}
