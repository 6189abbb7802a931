// Package msgcat resolves the human-readable message shown for an error
// category, in the locale detected for the request.
package msgcat

var messages = map[string]map[string]string{
	"en": {
		"validation":        "The request is invalid. Check the selected layers and region.",
		"insufficient_data": "Not enough images are available in the requested time range.",
		"encoding":          "The movie could not be encoded. Please try again later.",
		"not_found":         "No movie exists with that identifier.",
		"stale_token":       "This movie was regenerated; the token is no longer valid.",
		"internal":          "Something went wrong. Please try again later.",
	},
	"es": {
		"validation":        "La solicitud no es válida. Revise las capas y la región seleccionadas.",
		"insufficient_data": "No hay suficientes imágenes disponibles en el rango de tiempo solicitado.",
		"encoding":          "No se pudo codificar la película. Inténtelo de nuevo más tarde.",
		"not_found":         "No existe ninguna película con ese identificador.",
		"stale_token":       "La película fue regenerada; el token ya no es válido.",
		"internal":          "Algo salió mal. Inténtelo de nuevo más tarde.",
	},
}

// Message returns the text for an error kind in the given locale, falling
// back to English and then to the generic category.
func Message(locale, kind string) string {
	table, ok := messages[locale]
	if !ok {
		table = messages["en"]
	}
	if msg, ok := table[kind]; ok {
		return msg
	}
	if msg, ok := messages["en"][kind]; ok {
		return msg
	}
	return messages["en"]["internal"]
}
