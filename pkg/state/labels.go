package state

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var turkish = map[string]string{
	string(StatusIdle):         "Beklemede",
	string(StatusPlanning):     "Planlama",
	string(StatusProducing):    "Üretimde",
	string(StatusQualityCheck): "Kalite Kontrol",
	string(StatusCompleted):    "Tamamlandı",
	string(TabProduction):      "Üretim",
	string(TabStages):          "Aşamalar",
	string(TabQuality):         "Kalite",
	string(TabHistory):         "Geçmiş",
	string(TabOperators):       "Operatörler",
	string(TabInventory):       "Envanter",
}

func init() {
	for k, v := range turkish {
		_ = message.SetString(language.Turkish, "label."+k, v)
	}
}

// Label returns the display label for a status or tab identifier in tag's language.
// Languages without a catalog fall back to a title-cased English label.
func Label(tag language.Tag, id string) string {
	fallback := cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
	base, _ := tag.Base()
	if tb, _ := language.Turkish.Base(); base != tb {
		return fallback
	}
	p := message.NewPrinter(language.Turkish)
	return p.Sprintf(message.Key("label."+id, fallback))
}

// StatusLabel is Label for a workflow status.
func StatusLabel(tag language.Tag, s WorkflowStatus) string {
	return Label(tag, string(s))
}
