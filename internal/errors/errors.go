package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示运行时内统一的错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Fatal     bool
	// Alert marks failures that operators should be paged for.
	Alert bool
}

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigInvalid      Code = "CONFIG_INVALID"
	CodeUninitialized      Code = "UNINITIALIZED"
	CodeAgentCompileFailed Code = "AGENT_COMPILE_FAILED"
	CodeAgentLoadFailed    Code = "AGENT_LOAD_FAILED"
	CodeAgentRunFailed     Code = "AGENT_RUN_FAILED"
	CodeHubRequestFailed   Code = "HUB_REQUEST_FAILED"
	CodeCapabilityDenied   Code = "CAPABILITY_DENIED"
	CodePollTimeout        Code = "POLL_TIMEOUT"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
	CodeEventsFailure      Code = "EVENTS_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:            {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:    {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:           {Message: "resource not found", Severity: SeverityInfo},
		CodeConfigInvalid:      {Message: "invalid run configuration", Severity: SeverityCritical, Fatal: true, Alert: true},
		CodeUninitialized:      {Message: "runtime not initialized", Severity: SeverityCritical, Fatal: true},
		CodeAgentCompileFailed: {Message: "agent compilation failed", Severity: SeverityCritical, Fatal: true, Alert: true},
		CodeAgentLoadFailed:    {Message: "agent module failed to load", Severity: SeverityCritical, Fatal: true, Alert: true},
		CodeAgentRunFailed:     {Message: "agent returned an error", Severity: SeverityWarning},
		CodeHubRequestFailed:   {Message: "hub request failed", Severity: SeverityWarning, Retryable: true},
		CodeCapabilityDenied:   {Message: "capability denied by policy", Severity: SeverityWarning},
		CodePollTimeout:        {Message: "polling timed out", Severity: SeverityWarning, Retryable: true},
		CodeStorageFailure:     {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeEventsFailure:      {Message: "event delivery failure", Severity: SeverityWarning, Retryable: true},
	}
)

// Register 允许各模块在初始化阶段注册或覆盖错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the coded error type used across the runtime.
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	severity  *Severity
}

// Option customises an Error at construction time.
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable overrides the code's retryable default.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New creates an error. An empty message falls back to the code's default.
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// Fatal reports whether the failure must abort the current bootstrap or run.
func (e *Error) Fatal() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Fatal
}

// Alert reports whether the failure should reach the alerting channels.
func (e *Error) Alert() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Alert
}

// From extracts an *Error from a chain.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or UNKNOWN.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	return stdErrors.Is(err, New(code, ""))
}

// RetryableError reports whether err is marked retryable.
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert reports whether err carries a code flagged for alerting.
// Uncoded errors do not alert.
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.Alert()
	}
	return false
}

// SeverityOf returns the severity of err.
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
