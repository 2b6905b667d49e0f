package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer
// access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// RecordingMimeType is the content type reported to the backend for every
// uploaded audio segment. The capture pipeline always produces AAC in an
// MP4 container.
const RecordingMimeType = "audio/mp4"
