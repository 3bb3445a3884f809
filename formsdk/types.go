package formsdk

import (
	"encoding/json"
	"errors"
	"fmt"
)

type DataItemType string

const (
	DataItemNone     DataItemType = "None"
	DataItemShowPdf  DataItemType = "ShowPdf"
	DataItemText     DataItemType = "Text"
	DataItemCheckBox DataItemType = "CheckBox"
)

// FormDefinition is a form template as stored in the forms platform (a main
// element with its data elements).
type FormDefinition struct {
	Id       int           `json:"id"`
	Label    string        `json:"label"`
	Repeated int           `json:"repeated"`
	Elements []DataElement `json:"elements"`
}

type DataElement struct {
	Id          int        `json:"id"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	DataItems   []DataItem `json:"dataItems"`
}

type DataItem struct {
	Id    int          `json:"id"`
	Type  DataItemType `json:"type"`
	Label string       `json:"label"`
	Value string       `json:"value,omitempty"`
}

type Site struct {
	SiteUid int    `json:"siteUid"`
	Name    string `json:"name"`
}

var ErrTemplateShape = errors.New("form template is missing a required element")

// FormSlots are the mutable parts of a route form, resolved once so callers
// never index into element lists themselves.
type FormSlots struct {
	Element   *DataElement
	LabelItem *DataItem
	PdfItem   *DataItem
}

// Slots resolves the first data element, its first data item and its ShowPdf item.
func (f *FormDefinition) Slots() (*FormSlots, error) {
	if f == nil || len(f.Elements) == 0 {
		return nil, fmt.Errorf("%w: no data element", ErrTemplateShape)
	}
	el := &f.Elements[0]
	if len(el.DataItems) == 0 {
		return nil, fmt.Errorf("%w: data element %d has no data items", ErrTemplateShape, el.Id)
	}
	slots := &FormSlots{Element: el, LabelItem: &el.DataItems[0]}
	for i := range el.DataItems {
		if el.DataItems[i].Type == DataItemShowPdf {
			slots.PdfItem = &el.DataItems[i]
			break
		}
	}
	if slots.PdfItem == nil {
		return nil, fmt.Errorf("%w: data element %d has no %s item", ErrTemplateShape, el.Id, DataItemShowPdf)
	}
	if slots.PdfItem == slots.LabelItem {
		return nil, fmt.Errorf("%w: label item and %s item coincide", ErrTemplateShape, DataItemShowPdf)
	}
	return slots, nil
}

// Clone returns a deep copy.
func (f FormDefinition) Clone() FormDefinition {
	out := f
	out.Elements = make([]DataElement, len(f.Elements))
	for i, el := range f.Elements {
		el.DataItems = append([]DataItem(nil), el.DataItems...)
		out.Elements[i] = el
	}
	return out
}

type uploadResponse struct {
	Checksum string `json:"checksum"`
}

type createCaseRequest struct {
	SiteUid int             `json:"siteUid"`
	Form    *FormDefinition `json:"form"`
}

type createCaseResponse struct {
	CaseId json.Number `json:"caseId"`
}
