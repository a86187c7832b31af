package llm

// instructionPrefix is the fixed task framing prepended to every row's
// joined alert text before it is sent to the model.
const instructionPrefix = "Extract every program path and filename from the following security alert content and classify each one:\n"

// BuildPrompt prefixes the extraction instruction to the joined row text.
func BuildPrompt(input string) string {
	return instructionPrefix + input
}
