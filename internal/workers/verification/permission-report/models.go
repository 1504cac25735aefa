package permissionreport

// Input carries device reports keyed by kind: camera, microphone, internet.
// Values are granted, denied or pending.
type Input struct {
	ApplicationID string            `json:"applicationId"`
	Permissions   map[string]string `json:"permissions"`
}

type Output struct {
	PermissionStatus string            `json:"permissionStatus"`
	Permissions      map[string]string `json:"permissions"`
	DeniedKinds      []string          `json:"deniedKinds"`
}
