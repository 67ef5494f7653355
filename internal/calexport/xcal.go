package calexport

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"

	"github.com/cyp0633/caldora-recur/server/occurrence"
)

// XCal is the xCal namespace.
const XCal = "urn:ietf:params:xml:ns:icalendar-2.0"

var dateTimeProps = map[string]bool{
	ical.PropDateTimeStart: true,
	ical.PropDateTimeEnd:   true,
	ical.PropDateTimeStamp: true,
	ical.PropRecurrenceID:  true,
}

// XCalDocument converts entries to an xCal document.
func XCalDocument(entries []occurrence.Entry, stamp time.Time) (*etree.Document, error) {
	cal, err := Calendar(entries, stamp)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("icalendar")
	root.CreateAttr("xmlns", XCal)
	if err := appendComponent(root, cal.Component); err != nil {
		return nil, err
	}
	return doc, nil
}

// WriteXCal encodes entries as an indented xCal document.
func WriteXCal(w io.Writer, entries []occurrence.Entry, stamp time.Time) error {
	doc, err := XCalDocument(entries, stamp)
	if err != nil {
		return err
	}
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write xcal: %w", err)
	}
	return nil
}

func appendComponent(parent *etree.Element, comp *ical.Component) error {
	el := parent.CreateElement(strings.ToLower(comp.Name))
	props := el.CreateElement("properties")
	for _, name := range slices.Sorted(maps.Keys(comp.Props)) {
		for _, prop := range comp.Props[name] {
			if err := appendProp(props, &prop); err != nil {
				return err
			}
		}
	}
	if len(comp.Children) > 0 {
		children := el.CreateElement("components")
		for _, child := range comp.Children {
			if err := appendComponent(children, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendProp(parent *etree.Element, prop *ical.Prop) error {
	el := parent.CreateElement(strings.ToLower(prop.Name))
	if len(prop.Params) > 0 {
		params := el.CreateElement("parameters")
		for _, name := range slices.Sorted(maps.Keys(prop.Params)) {
			if name == ical.ParamValue {
				continue
			}
			p := params.CreateElement(strings.ToLower(name))
			for _, v := range prop.Params[name] {
				p.CreateElement("text").SetText(v)
			}
		}
		if len(params.ChildElements()) == 0 {
			el.RemoveChild(params)
		}
	}

	switch {
	case dateTimeProps[prop.Name]:
		el.CreateElement("date-time").SetText(xcalDateTime(prop.Value))
	case prop.Name == ical.PropRecurrenceRule:
		appendRecur(el, prop.Value)
	default:
		text, err := prop.Text()
		if err != nil {
			return fmt.Errorf("property %s: %w", prop.Name, err)
		}
		el.CreateElement("text").SetText(text)
	}
	return nil
}

// xcalDateTime rewrites 20240101T090000Z as 2024-01-01T09:00:00Z.
func xcalDateTime(v string) string {
	if len(v) < 15 {
		return v
	}
	return v[0:4] + "-" + v[4:6] + "-" + v[6:8] + "T" + v[9:11] + ":" + v[11:13] + ":" + v[13:15] + v[15:]
}

func appendRecur(parent *etree.Element, rule string) {
	recur := parent.CreateElement("recur")
	for _, part := range strings.Split(rule, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		if key == "until" {
			value = xcalDateTime(value)
		}
		for _, v := range strings.Split(value, ",") {
			recur.CreateElement(key).SetText(v)
		}
	}
}
