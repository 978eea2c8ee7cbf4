package identifier

import (
	"fmt"
	"time"
)

// FinancialYear returns the April-to-March financial year containing t as "YY-YY".
// October 2025 is "25-26"; February 2025 is "24-25".
func FinancialYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return fmt.Sprintf("%02d-%02d", start%100, (start+1)%100)
}
