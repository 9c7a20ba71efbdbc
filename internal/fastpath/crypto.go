package fastpath

import "regexp"

var (
	coinRe = regexp.MustCompile(`(?i)\b(bitcoin|btc|ethereum|eth|solana|sol|dogecoin|doge|crypto(?:currency)?)\b`)
	portfolioRe = regexp.MustCompile(`(?i)\b(portfolio|holdings|report|balance|price)\b`)
	explicitReportRe = regexp.MustCompile(`(?i)\b(give|send|show)\s+me\s+(?:my|the)\s+(?:crypto|portfolio)\s+report\b`)
)

// DetectCrypto reports whether text expresses crypto portfolio/report
// intent — a coin name together with a portfolio/report/price term.
func DetectCrypto(text string) bool {
	return coinRe.MatchString(text) && portfolioRe.MatchString(text)
}

// IsExplicitCryptoReportRequest is a stricter form of DetectCrypto that
// bypasses the duplicate-inbound filter (§4.1 dedupe carve-out): the user
// is asking to re-see their report, so a repeated ask should not be
// silently dropped as a duplicate.
func IsExplicitCryptoReportRequest(text string) bool {
	return explicitReportRe.MatchString(text)
}
