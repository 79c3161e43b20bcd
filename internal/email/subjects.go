package email

const (
	subjectVerification    = "Verify your email address"
	subjectPasswordReset   = "Reset your password"
	subjectUploadFailedFmt = "Your photo %s could not be published"
	subjectAccountRevoked  = "Your Facebook account was disconnected"
)
