package service

import "github.com/kanbanlab/kanban-client/internal/identity"

// genericAuthMessage covers every provider code the table does not
// know, and non-provider failures (e.g. a profile write error).
const genericAuthMessage = "Something went wrong. Please try again."

// authMessages maps identity-provider error codes to the user-facing
// strings returned in results. The table is fixed; unknown codes fall
// back to genericAuthMessage.
var authMessages = map[string]string{
	identity.CodeEmailExists:        "This email address is already in use.",
	identity.CodeInvalidEmail:       "Invalid email address.",
	identity.CodeOperationNotAllow:  "Operation not allowed.",
	identity.CodeWeakPassword:       "Password is too weak (minimum 6 characters).",
	identity.CodeUserDisabled:       "This account has been disabled.",
	identity.CodeEmailNotFound:      "No account found with this email.",
	identity.CodeInvalidPassword:    "Incorrect password.",
	identity.CodeInvalidCredentials: "Incorrect email or password.",
	identity.CodeTooManyAttempts:    "Too many attempts. Please try again later.",
	identity.CodeNetworkFailure:     "Network error. Check your connection.",
}

// messageFor translates a provider error into its user-facing string.
func messageFor(err error) string {
	if msg, ok := authMessages[identity.ErrorCode(err)]; ok {
		return msg
	}
	return genericAuthMessage
}
