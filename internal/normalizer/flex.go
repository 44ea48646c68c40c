package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/DocExplain/DocExplain-app/internal/models"
)

// The fast backend only guarantees syntactic JSON, so every field is
// decoded through these lenient types before reaching the canonical model.

// flexString accepts a string, number, bool, array or object.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(string(item)); s != "" {
				lines = append(lines, s)
			}
		}
		*f = flexString(strings.Join(lines, "\n"))
	case '{':
		var obj map[string]flexString
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s", k, obj[k]))
		}
		*f = flexString(strings.Join(lines, "\n"))
	default:
		*f = flexString(string(data))
	}
	return nil
}

func (f flexString) String() string {
	return strings.TrimSpace(string(f))
}

// nullable turns empty and placeholder values into nil.
func (f flexString) nullable() *string {
	s := f.String()
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "nil":
		return nil
	}
	return &s
}

// flexStrings accepts an array of values or a single string.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}

	if data[0] != '[' {
		var s flexString
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = nil
		for _, line := range strings.Split(s.String(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				*f = append(*f, line)
			}
		}
		return nil
	}

	var items []flexString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := item.String(); s != "" {
			out = append(out, s)
		}
	}
	*f = out
	return nil
}

// flexBool accepts a bool or a "true"/"false" string. Absent stays nil.
type flexBool struct {
	set   bool
	value bool
}

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s flexString
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(strings.ToLower(s.String()))
	if err != nil {
		switch strings.ToLower(s.String()) {
		case "yes":
			v = true
		case "no":
			v = false
		default:
			return nil
		}
	}
	f.set, f.value = true, v
	return nil
}

func (f flexBool) or(def bool) bool {
	if !f.set {
		return def
	}
	return f.value
}

// flexInt accepts a number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(s.String(), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

type rawTerm struct {
	Term        flexString `json:"term"`
	Explanation flexString `json:"explanation"`
	Definition  flexString `json:"definition"`
}

// flexTerms accepts a list of {term, explanation}, a list of "term: explanation"
// strings, or an object mapping term to explanation.
type flexTerms []models.ComplexTerm

func (f *flexTerms) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = nil
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '{' {
		var obj map[string]flexString
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			*f = append(*f, models.ComplexTerm{Term: k, Explanation: obj[k].String()})
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var t rawTerm
			if err := json.Unmarshal(item, &t); err != nil {
				return err
			}
			explanation := t.Explanation.String()
			if explanation == "" {
				explanation = t.Definition.String()
			}
			if t.Term.String() != "" {
				*f = append(*f, models.ComplexTerm{Term: t.Term.String(), Explanation: explanation})
			}
			continue
		}

		var s flexString
		if err := json.Unmarshal(item, &s); err != nil {
			return err
		}
		term, explanation, _ := strings.Cut(s.String(), ":")
		if term = strings.TrimSpace(term); term != "" {
			*f = append(*f, models.ComplexTerm{Term: term, Explanation: strings.TrimSpace(explanation)})
		}
	}
	return nil
}

type rawAction struct {
	Type        flexString `json:"type"`
	Label       flexString `json:"label"`
	Description flexString `json:"description"`
}

// flexActions accepts a list of action objects or plain labels.
type flexActions []models.SuggestedAction

func (f *flexActions) UnmarshalJSON(data []byte) error {
	*f = nil
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || items == nil {
		return nil
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var a rawAction
			if err := json.Unmarshal(item, &a); err != nil {
				return err
			}
			label := a.Label.String()
			if label == "" {
				label = a.Description.String()
			}
			if label == "" {
				continue
			}
			kind := a.Type.String()
			if kind == "" {
				kind = "info"
			}
			*f = append(*f, models.SuggestedAction{Type: kind, Label: label, Description: a.Description.String()})
			continue
		}

		var s flexString
		if err := json.Unmarshal(item, &s); err != nil {
			return err
		}
		if s.String() != "" {
			*f = append(*f, models.SuggestedAction{Type: "info", Label: s.String()})
		}
	}
	return nil
}

type rawPage struct {
	PageNumber    flexInt    `json:"pageNumber"`
	Page          flexInt    `json:"page"`
	Summary       flexString `json:"summary"`
	ExtractedText flexString `json:"extractedText"`
	Text          flexString `json:"text"`
}

func (p rawPage) number() int {
	if p.PageNumber > 0 {
		return int(p.PageNumber)
	}
	return int(p.Page)
}

func (p rawPage) text() string {
	if t := p.ExtractedText.String(); t != "" {
		return t
	}
	return p.Text.String()
}
