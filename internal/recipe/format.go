package recipe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RenderSteps writes steps in the field format the scene descriptor reads:
//
//	- step_number: 1
//	- action: Boil salted water
//	- ingredients: water, salt
//	- tools: large pot
func RenderSteps(steps []StepRecord) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteString("\n")
		}
		writeScalar(&b, "step_number", strconv.Itoa(s.StepNumber))
		writeScalar(&b, "action", s.Action)
		writeList(&b, "ingredients", s.Ingredients)
		writeList(&b, "tools", s.Tools)
	}
	return b.String()
}

// RenderScenes writes scene records in the same field format.
func RenderScenes(scenes []SceneRecord) string {
	var b strings.Builder
	for i, s := range scenes {
		if i > 0 {
			b.WriteString("\n")
		}
		writeScalar(&b, "step_number", strconv.Itoa(s.StepNumber))
		writeScalar(&b, "scene_description", s.SceneDescription)
		writeList(&b, "key_elements", s.KeyElements)
		writeScalar(&b, "continuity_notes", s.ContinuityNotes)
	}
	return b.String()
}

func writeScalar(b *strings.Builder, key, value string) {
	value = strings.Join(strings.Fields(value), " ")
	if value != "" && strings.IndexByte(quoteChars, value[0]) >= 0 {
		value = `"` + value + `"`
	}
	fmt.Fprintf(b, "- %s: %s\n", key, value)
}

func writeList(b *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(b, "- %s: none\n", key)
		return
	}
	rendered := make([]string, len(items))
	sub := false
	for i, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if strings.Contains(item, ",") {
			sub = true
		}
		if needsQuote(item) {
			item = `"` + item + `"`
		}
		rendered[i] = item
	}
	if sub {
		fmt.Fprintf(b, "- %s:\n", key)
		for _, it := range rendered {
			fmt.Fprintf(b, "  - %s\n", it)
		}
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", key, strings.Join(rendered, ", "))
}

const quoteChars = "\"'`"

// needsQuote reports whether a list item would be read back as something
// else: a bracketed list, an empty marker, a field line or a heading.
func needsQuote(item string) bool {
	if item == "" {
		return false
	}
	for _, prefix := range []string{`"`, "'", "`", "[", "#", "*", "•", "-"} {
		if strings.HasPrefix(item, prefix) {
			return true
		}
	}
	if isEmptyMarker(item) || stepHeading.MatchString(item) || numbered.MatchString(item) {
		return true
	}
	if m := keyLine.FindStringSubmatch(item); m != nil {
		if _, ok := stepSchema.resolve(m[1]); ok {
			return true
		}
		if _, ok := sceneSchema.resolve(m[1]); ok {
			return true
		}
	}
	return false
}

type fieldKind int

const (
	scalarField fieldKind = iota
	listField
	numberField
)

type recordSchema struct {
	fields  map[string]fieldKind
	aliases map[string]string
}

var stepSchema = recordSchema{
	fields: map[string]fieldKind{
		"step_number": numberField,
		"action":      scalarField,
		"ingredients": listField,
		"tools":       listField,
	},
	aliases: map[string]string{
		"step":             "step_number",
		"number":           "step_number",
		"ingredient":       "ingredients",
		"ingredients_used": "ingredients",
		"tool":             "tools",
		"equipment":        "tools",
	},
}

var sceneSchema = recordSchema{
	fields: map[string]fieldKind{
		"step_number":       numberField,
		"scene_description": scalarField,
		"key_elements":      listField,
		"continuity_notes":  scalarField,
	},
	aliases: map[string]string{
		"step":            "step_number",
		"number":          "step_number",
		"description":     "scene_description",
		"scene":           "scene_description",
		"prompt":          "scene_description",
		"elements":        "key_elements",
		"key_element":     "key_elements",
		"continuity":      "continuity_notes",
		"continuity_note": "continuity_notes",
	},
}

type rawRecord struct {
	number int
	values map[string]string
	lists  map[string][]string
}

func newRawRecord() *rawRecord {
	return &rawRecord{values: map[string]string{}, lists: map[string][]string{}}
}

var (
	keyLine     = regexp.MustCompile(`^([A-Za-z][A-Za-z _-]*?)\s*:\s*(.*)$`)
	stepHeading = regexp.MustCompile(`(?i)^step\s*#?\s*\d+\s*[:.)-]?\s*$`)
	numbered    = regexp.MustCompile(`^\d+[.)]\s+`)
	firstInt    = regexp.MustCompile(`-?\d+`)
)

// readRecords scans field-format text into raw records. A step_number field
// opens a new record; list fields take either an inline comma list or the
// sub-bullets that follow; scalar fields absorb continuation lines until a
// blank line or the next field.
func readRecords(text string, schema recordSchema) []*rawRecord {
	var (
		records     []*rawRecord
		cur         *rawRecord
		pendingList string
		pendingText string
	)
	flush := func() {
		if cur != nil {
			records = append(records, cur)
		}
		cur = nil
	}
	reset := func() {
		pendingList, pendingText = "", ""
	}

	for _, line := range strings.Split(text, "\n") {
		content := strings.TrimSpace(stripMarkdown(line))
		if content == "" || strings.HasPrefix(content, "```") {
			reset()
			continue
		}
		if strings.HasPrefix(content, "#") || stepHeading.MatchString(content) {
			reset()
			continue
		}

		bullet := false
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(content, marker) {
				content = strings.TrimSpace(content[len(marker):])
				bullet = true
				break
			}
		}
		if loc := numbered.FindStringIndex(content); loc != nil {
			content = content[loc[1]:]
			bullet = true
		}

		if m := keyLine.FindStringSubmatch(content); m != nil {
			if key, ok := schema.resolve(m[1]); ok {
				value := strings.TrimSpace(m[2])
				reset()
				switch schema.fields[key] {
				case numberField:
					flush()
					cur = newRawRecord()
					cur.number = leadingInt(value)
				case listField:
					if cur == nil {
						cur = newRawRecord()
					}
					if value == "" {
						pendingList = key
						cur.lists[key] = nil
					} else {
						cur.lists[key] = splitList(value)
					}
				case scalarField:
					if cur == nil {
						cur = newRawRecord()
					}
					cur.values[key] = unquote(value)
					pendingText = key
				}
				continue
			}
		}

		if cur == nil {
			continue
		}
		switch {
		case pendingList != "" && bullet:
			if item := unquote(content); item != "" {
				cur.lists[pendingList] = append(cur.lists[pendingList], item)
			}
		case pendingText != "":
			joined := strings.TrimSpace(cur.values[pendingText] + " " + unquote(content))
			cur.values[pendingText] = joined
		}
	}
	flush()
	return records
}

func (s recordSchema) resolve(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if _, ok := s.fields[key]; ok {
		return key, true
	}
	if alias, ok := s.aliases[key]; ok {
		return alias, true
	}
	return "", false
}

func stripMarkdown(line string) string {
	return strings.NewReplacer("**", "", "__", "").Replace(line)
}

func leadingInt(s string) int {
	m := firstInt.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// unquote removes one matching pair of surrounding quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == s[len(s)-1] && strings.IndexByte(quoteChars, s[0]) >= 0 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		value = strings.TrimSpace(value[1 : len(value)-1])
	}
	if isEmptyMarker(value) {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if item := unquote(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// isEmptyMarker matches the bare words models use for an empty list. A quoted
// "none" is an item.
func isEmptyMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n/a", "na", "-", "nothing":
		return true
	}
	return false
}

// ReadSteps parses field-format step text back into records.
func ReadSteps(text string) ([]StepRecord, error) {
	raw := readRecords(text, stepSchema)
	if len(raw) == 0 {
		return nil, ErrNoParsableOutput
	}
	steps := make([]StepRecord, 0, len(raw))
	for _, r := range raw {
		steps = append(steps, StepRecord{
			StepNumber:  r.number,
			Action:      r.values["action"],
			Ingredients: r.lists["ingredients"],
			Tools:       r.lists["tools"],
		})
	}
	return steps, nil
}

// ReadScenes parses field-format scene text back into records.
func ReadScenes(text string) ([]SceneRecord, error) {
	raw := readRecords(text, sceneSchema)
	if len(raw) == 0 {
		return nil, ErrNoParsableOutput
	}
	scenes := make([]SceneRecord, 0, len(raw))
	for _, r := range raw {
		scenes = append(scenes, SceneRecord{
			StepNumber:       r.number,
			SceneDescription: r.values["scene_description"],
			KeyElements:      r.lists["key_elements"],
			ContinuityNotes:  r.values["continuity_notes"],
		})
	}
	return scenes, nil
}
