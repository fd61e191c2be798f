package audit

import "errors"

// ErrTableCreation indicates the audit table could not be created.
var ErrTableCreation = errors.New("creating " + TableName + " table")

// ErrRecordFailed indicates an audit row could not be written.
var ErrRecordFailed = errors.New("recording audit row")
