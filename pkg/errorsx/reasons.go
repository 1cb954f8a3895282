package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDeviceOpen ReasonCode = "device_open"
	ReasonDeviceRead ReasonCode = "device_read"

	ReasonWakeCredential ReasonCode = "wake_missing_credential"
	ReasonWakeModel      ReasonCode = "wake_missing_model"

	ReasonRecognition ReasonCode = "recognition"
	ReasonSTTConnect  ReasonCode = "stt_connect"

	ReasonSynthesis  ReasonCode = "tts_synthesis"
	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonPlayback   ReasonCode = "playback"

	ReasonServiceHTTP    ReasonCode = "service_http"
	ReasonServiceTimeout ReasonCode = "service_timeout"
	ReasonServiceDecode  ReasonCode = "service_decode"

	ReasonLLMGenerate ReasonCode = "llm_generate"

	ReasonExecutorBusy ReasonCode = "executor_busy"

	ReasonUploadMissing ReasonCode = "upload_missing"
	ReasonUploadDecode  ReasonCode = "upload_decode"

	ReasonSkillPanic ReasonCode = "skill_panic"

	ReasonTransportSend ReasonCode = "transport_send"
)

// IsInitFailure reports whether a reason describes a component that could not
// start because a credential, model asset or device was unavailable.
func IsInitFailure(reason ReasonCode) bool {
	switch reason {
	case ReasonWakeCredential, ReasonWakeModel, ReasonDeviceOpen:
		return true
	default:
		return false
	}
}
