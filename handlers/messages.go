package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/lacase_backend/appctx"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	msgErrorObtainingLists = "ErrorObtainingLists"
	msgErrorExportingLists = "ErrorExportingLists"
	msgInvalidRequest      = "InvalidRequest"
	msgUnknownRoute        = "UnknownRoute"
	msgProvisioningFailed  = "ProvisioningFailed"
	msgErrorObtainingRuns  = "ErrorObtainingRuns"
	msgServiceNotReady     = "ServiceNotReady"
)

// First entry is the fallback.
var messageLocales = []language.Tag{language.Danish, language.English}

var messageMatcher = language.NewMatcher(messageLocales)

func init() {
	for key, texts := range map[string][2]string{
		msgErrorObtainingLists: {"Der opstod en fejl under hentning af listen", "An error occurred while obtaining the list"},
		msgErrorExportingLists: {"Der opstod en fejl under eksport af listen", "An error occurred while exporting the list"},
		msgInvalidRequest:      {"Ugyldig forespørgsel", "Invalid request"},
		msgUnknownRoute:        {"Ukendt strækning", "Unknown route"},
		msgProvisioningFailed:  {"Oprettelse af LA-sager kunne ikke startes", "LA case provisioning could not be started"},
		msgErrorObtainingRuns:  {"Der opstod en fejl under hentning af kørsler", "An error occurred while obtaining runs"},
		msgServiceNotReady:     {"Tjenesten er ikke klar", "Service is not ready"},
	} {
		_ = message.SetString(language.Danish, key, texts[0])
		_ = message.SetString(language.English, key, texts[1])
	}
}

// requestLocale picks the response language from Accept-Language.
func requestLocale(acceptLanguage string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, idx, _ := messageMatcher.Match(tags...)
	return messageLocales[idx]
}

func localize(c *gin.Context, key string) string {
	tag := requestLocale(c.GetHeader("Accept-Language"))
	if v, ok := c.Request.Context().Value(appctx.ContextKeyLocale).(language.Tag); ok {
		tag = v
	}
	return message.NewPrinter(tag).Sprintf(key)
}
