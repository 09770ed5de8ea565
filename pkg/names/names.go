package names

import (
	"fmt"
	"strings"
)

// LicenseExt is the file extension of persisted license artifacts.
const LicenseExt = ".lic"

// emailReplacer maps the characters of an email address that are unsafe in
// file names. "@" and ":" follow the established naming scheme; path
// separators are folded in too so an email can never escape the output
// directory.
var emailReplacer = strings.NewReplacer(
	"@", "_at_",
	":", "_",
	"/", "_",
	"\\", "_",
)

// SanitizeEmail returns the file-name form of an email address, e.g.
// "jane@example.com" becomes "jane_at_example.com".
func SanitizeEmail(email string) string {
	return emailReplacer.Replace(email)
}

// LicenseFile returns the file name for the attempt'th license issued at
// issuedAt for email. The first attempt has no suffix:
//
//	1700000000_jane_at_example.com.lic
//	1700000000_jane_at_example.com-2.lic
func LicenseFile(issuedAt int64, email string, attempt int) string {
	base := fmt.Sprintf("%d_%s", issuedAt, SanitizeEmail(email))
	if attempt > 1 {
		base = fmt.Sprintf("%s-%d", base, attempt)
	}
	return base + LicenseExt
}
