package apierr

// userMessages maps known backend error codes to the copy shown to end
// users. Raw technical messages never reach an end-user surface.
//
// Keys here and in validationSuggestions must stay in sync: every code
// with suggestions needs a message, though not every message needs
// suggestions.
var userMessages = map[string]string{
	"non_business_query":    "This assistant answers business and market analysis questions. Try rephrasing your question around your business.",
	"invalid_followup":      "That follow-up doesn't relate to the previous analysis. Ask a follow-up about the earlier result, or start a new query.",
	"project_not_found":     "This project no longer exists. It may have been deleted from another session.",
	"empty_query":           "Please enter a question before submitting.",
	"query_too_long":        "Your question is too long for a single analysis. Try splitting it into smaller questions.",
	"file_too_large":        "One of the attached files is too large to process. Files must be under the size limit.",
	"unsupported_file_type": "One of the attached files is in a format we can't process yet.",
	"analysis_timeout":      "The analysis took too long and was stopped. Try a narrower question.",
	"agent_unavailable":     "The analysis service is temporarily unavailable. Please try again in a moment.",
	"rate_limited":          "You're sending requests too quickly. Wait a moment and try again.",
}

// typeFallbacks supply the user-facing copy when the backend code is
// unknown.
var typeFallbacks = map[Type]string{
	TypeValidation: "We couldn't process that question. Try rephrasing it.",
	TypeNetwork:    "Unable to reach the analysis service. Check your connection and try again.",
	TypeServer:     "Something went wrong on our side. Please try again shortly.",
	TypeAuth:       "Your session has expired. Please sign in again.",
	TypeUnknown:    "Sorry, something unexpected went wrong. Please try again.",
}

// validationSuggestions maps a subset of validation codes to example
// corrected queries the UI can offer as alternatives. This is data, not
// logic.
var validationSuggestions = map[string][]string{
	"non_business_query": {
		"What are the biggest risks to my current pricing strategy?",
		"How does my customer churn compare to industry benchmarks?",
		"Which market segment should we prioritize next quarter?",
	},
	"empty_query": {
		"Summarize the key findings from my uploaded financials.",
		"What trends should I watch in my industry this year?",
	},
	"query_too_long": {
		"Break the question into parts: start with 'What is the main driver of our revenue decline?'",
	},
	"invalid_followup": {
		"Can you expand on the second recommendation?",
		"What data supports the growth estimate above?",
	},
}

func userMessageFor(code string, typ Type) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return typeFallbacks[typ]
}

// ValidationSuggestions returns example corrected queries for a
// validation error code, or nil if none are defined.
func ValidationSuggestions(code string) []string {
	return validationSuggestions[code]
}
