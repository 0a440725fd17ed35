package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrAccessDenied  ErrCode = "ACCESS_DENIED"
	ErrNotParentOf   ErrCode = "NOT_PARENT_OF_STUDENT"
	ErrNotTestAuthor ErrCode = "NOT_TEST_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"

	// ─── Test-specific ─────────────────────────────────────────────────
	ErrTestNotFound         ErrCode = "TEST_NOT_FOUND"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrTestAlreadySubmitted ErrCode = "TEST_ALREADY_SUBMITTED"

	// ─── Player session ────────────────────────────────────────────────
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrUnknownAction     ErrCode = "UNKNOWN_ACTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrAccessDenied:
		return "Akses ke tes ini belum dibuka untuk Anda."
	case ErrNotParentOf:
		return "Siswa ini tidak terhubung dengan akun Anda."
	case ErrNotTestAuthor:
		return "Anda bukan pembuat tes ini."

	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."

	case ErrTestNotFound:
		return "Tes tidak ditemukan atau belum dipublikasikan."
	case ErrNoQuestions:
		return "Tes ini tidak memiliki pertanyaan."
	case ErrTestAlreadySubmitted:
		return "Anda sudah mengumpulkan tes ini."

	case ErrSubmissionFailed:
		return "Pengumpulan jawaban gagal. Silakan coba lagi."
	case ErrSessionClosed:
		return "Sesi tes telah ditutup."
	case ErrUnknownAction:
		return "Tindakan tidak dikenal."

	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	case ErrUnavailable:
		return "Layanan sedang tidak tersedia."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
