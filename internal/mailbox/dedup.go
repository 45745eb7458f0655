package mailbox

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"neuromail-go/internal/mail"

	"github.com/cespare/xxhash/v2"
)

// EmailKey identifies a message: "id:<id>" when the service assigned one,
// otherwise "content:<hash>" over sender, subject, body and creation time.
func EmailKey(e mail.Email) string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	created := ""
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	content := strings.Join([]string{e.From, e.Subject, e.Body, created}, "-")
	return "content:" + strconv.FormatUint(xxhash.Sum64String(content), 36)
}

// Deduplicate keeps the first occurrence of every key and orders the result
// newest first. It reports how many duplicates were dropped.
func Deduplicate(emails []mail.Email) ([]mail.Email, int) {
	seen := make(map[string]struct{}, len(emails))
	out := make([]mail.Email, 0, len(emails))
	dropped := 0
	for _, e := range emails {
		key := EmailKey(e)
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out, dropped
}
