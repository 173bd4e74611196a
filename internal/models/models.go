package models

// Storage-side records that never leave the service.

type Schema struct {
	Name        string `json:"name" db:"name"`
	Version     string `json:"version" db:"version"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

type Template struct {
	Name        string `json:"name" db:"name"`
	Version     string `json:"version" db:"version"`
	TemplateTxt string `json:"template_text" db:"template_text"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}
