package provisioning

import (
	"fmt"

	"github.com/mmdatafocus/lacase_backend/config"
	"github.com/mmdatafocus/lacase_backend/formsdk"
	"golang.org/x/text/language"
)

// Materializer turns the shared LA template into the form for one route and window.
type Materializer struct {
	productLabel string
	locale       language.Tag
}

func NewMaterializer(productLabel string, locale language.Tag) *Materializer {
	return &Materializer{productLabel: productLabel, locale: locale}
}

// Materialize never mutates template; the result is a fresh copy.
func (m *Materializer) Materialize(template formsdk.FormDefinition, route config.Route, w Window, documentReference string) (*formsdk.FormDefinition, error) {
	form := template.Clone()
	slots, err := form.Slots()
	if err != nil {
		return nil, err
	}

	label := fmt.Sprintf("%s: %s", m.productLabel, route.DisplayName)
	form.Repeated = 1
	form.Label = label
	slots.Element.Label = label
	slots.Element.Description = FormatValidity(w, m.locale)
	slots.LabelItem.Label = route.DisplayName
	slots.PdfItem.Value = documentReference
	return &form, nil
}
