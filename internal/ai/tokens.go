package ai

// promptOverheadTokens approximates the fixed system-prompt and formatting
// cost added to every analysis request.
const promptOverheadTokens = 400

// EstimateTokens gives a provider-neutral upper-bound token estimate for the
// given content: roughly one token per four bytes, plus the fixed prompt
// overhead. Used only for the pre-call budget check.
func EstimateTokens(content string) int {
	return (len(content)+3)/4 + promptOverheadTokens
}
