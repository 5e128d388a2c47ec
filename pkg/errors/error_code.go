package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidConfiguration ErrorCode = 100
	ErrCodeInvalidParameter     ErrorCode = 101
	ErrCodeNegativeRate         ErrorCode = 102
	ErrCodeNegativeCooldown     ErrorCode = 103
	ErrCodeInvalidMode          ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeMissingColumns        ErrorCode = 203
	ErrCodeBarParseFailed        ErrorCode = 204

	// Backtest errors (300-399)
	ErrCodeBacktestStateNil     ErrorCode = 300
	ErrCodeBacktestInitFailed   ErrorCode = 301
	ErrCodeBacktestNoDatasource ErrorCode = 302
	ErrCodeBacktestNoResultsDir ErrorCode = 303
	ErrCodeResultWriteFailed    ErrorCode = 304

	// Sweep errors (400-499)
	ErrCodeSweepEmptyGrid ErrorCode = 400
	ErrCodeSweepRunFailed ErrorCode = 401
)
