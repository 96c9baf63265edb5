package notification

import (
	"fmt"
	"sort"
	"strings"
)

const (
	headerUrgentCombined = "⚠️【至急】期限が近い備蓄品があります（1週間以内・1ヶ月以内）"
	headerMonthAdvance   = "📅 1ヶ月以内に期限を迎える備蓄品があります"
	headerUrgent         = "⚠️【至急】1週間以内に期限を迎える備蓄品があります"
	closingLine          = "早めの消費・入れ替えをお願いします！"

	label30       = "1ヶ月前"
	label7        = "1週間前"
	unknownExpiry = "期限不明"
)

// ComposeMessage builds the reminder text for one family. The output is
// deterministic for a given candidate set regardless of input order.
func ComposeMessage(cands []Candidate) string {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ExpiryDate.Valid != b.ExpiryDate.Valid {
			return a.ExpiryDate.Valid // Unknown dates last
		}
		if a.ExpiryDate.String != b.ExpiryDate.String {
			return a.ExpiryDate.String < b.ExpiryDate.String
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	var any30, any7 bool
	for _, c := range sorted {
		any30 = any30 || c.Due30
		any7 = any7 || c.Due7
	}

	var b strings.Builder
	switch {
	case any30 && any7:
		b.WriteString(headerUrgentCombined)
	case any7:
		b.WriteString(headerUrgent)
	default:
		b.WriteString(headerMonthAdvance)
	}
	b.WriteString("\n")

	for _, c := range sorted {
		b.WriteString(itemLine(c))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(closingLine)
	return b.String()
}

func itemLine(c Candidate) string {
	// An item due for both reminders is shown with the more urgent label.
	label := label30
	if c.Due7 {
		label = label7
	}

	expiry := unknownExpiry
	if c.ExpiryDate.Valid && c.ExpiryDate.String != "" {
		expiry = strings.ReplaceAll(c.ExpiryDate.String, "-", "/")
	}

	line := fmt.Sprintf("・%s（%s）期限: %s", c.Name, label, expiry)
	if c.BagName.Valid && c.BagName.String != "" {
		line += fmt.Sprintf(" [%s]", c.BagName.String)
	}
	return line
}
