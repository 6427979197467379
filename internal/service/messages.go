package service

// Lang is the language the assistant answers in.
type Lang string

const (
	French  Lang = "fr"
	English Lang = "en"
)

// ParseLang maps a client value to a supported language, French by default.
func ParseLang(s string) (Lang, bool) {
	switch s {
	case "fr", "FR":
		return French, true
	case "en", "EN":
		return English, true
	}
	return French, false
}

type catalog struct {
	instructions    string
	noExcerpt       string
	contextHeader   string
	fallbackApology string
	fallbackIntro   string
	timeout         string
	streamFailed    string
	missingMessage  string
	messageTooLong  string
}

var catalogs = map[Lang]catalog{
	French: {
		instructions: "Tu es l’assistant IA de “The Entrepreneur Whisperer”. Réponds en français, de façon actionnable, " +
			"et base-toi en priorité sur les extraits de la base de connaissance fournis. " +
			"Si l’info est absente, dis-le clairement et propose une démarche. Termine par une courte liste de points clés.",
		noExcerpt:       "Aucun extrait pertinent n’a été trouvé dans la base de connaissance.",
		contextHeader:   "Extraits de la base de connaissance :",
		fallbackApology: "Désolé, je n’ai pas pu générer une réponse complète à ta question « %s ».",
		fallbackIntro:   "Voici les extraits les plus pertinents de la base de connaissance :",
		timeout:         "L’assistant met trop de temps à répondre. Réessaie dans quelques secondes.",
		streamFailed:    "La réponse a été interrompue. Réessaie dans quelques secondes.",
		missingMessage:  "Missing message",
		messageTooLong:  "Message trop long",
	},
	English: {
		instructions: "You are the AI assistant of “The Entrepreneur Whisperer”. Answer in English, in an actionable way, " +
			"relying first on the knowledge-base excerpts provided. " +
			"If the information is missing, say so clearly and suggest an approach. End with a short list of key points.",
		noExcerpt:       "No relevant excerpt was found in the knowledge base.",
		contextHeader:   "Knowledge-base excerpts:",
		fallbackApology: "Sorry, I could not generate a complete answer to your question “%s”.",
		fallbackIntro:   "Here are the most relevant excerpts from the knowledge base:",
		timeout:         "The assistant is taking too long to answer. Please retry in a few seconds.",
		streamFailed:    "The answer was interrupted. Please retry in a few seconds.",
		missingMessage:  "Missing message",
		messageTooLong:  "Message too long",
	},
}

func messagesFor(l Lang) catalog {
	if c, ok := catalogs[l]; ok {
		return c
	}
	return catalogs[French]
}

// TimeoutMessage is the user-facing text for a 504.
func TimeoutMessage(l Lang) string { return messagesFor(l).timeout }

// StreamFailedMessage is shown when a stream breaks for a non-timeout reason
// and the upstream gave no usable message.
func StreamFailedMessage(l Lang) string { return messagesFor(l).streamFailed }

// MissingMessage is the 400 text for an empty question.
func MissingMessage(l Lang) string { return messagesFor(l).missingMessage }

// MessageTooLong is the 400 text for an oversized question.
func MessageTooLong(l Lang) string { return messagesFor(l).messageTooLong }

// Instructions is the system prompt for l.
func Instructions(l Lang) string { return messagesFor(l).instructions }
