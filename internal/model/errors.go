package model

import "errors"

// ErrNotFound is the shared "referenced thing is gone" error class.
//
// Both the repository (missing row) and the notification channel
// (message already deleted) wrap this sentinel, so the reconciler can
// classify failures with errors.Is without depending on either
// implementation. Everything else is treated as transient and retried
// on the next loop iteration.
var ErrNotFound = errors.New("not found")
