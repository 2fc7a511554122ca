package models

import "gorm.io/gorm"

// AssetStatus represents how an asset entered the catalog.
type AssetStatus string

const (
	// AssetStatusUploaded indicates the asset was uploaded by its owner.
	AssetStatusUploaded AssetStatus = "uploaded"
	// AssetStatusProcessed indicates the asset is a transcoding output.
	AssetStatusProcessed AssetStatus = "processed"
)

// Asset is a catalogued file on disk, the unit of upload and of transcoding
// output. StoredPath always lies under {workspace_root}/{owner_id}/ and its
// basename is a freshly generated opaque identifier, never the display name.
type Asset struct {
	BaseModel

	// OwnerID is the user that owns this asset.
	OwnerID ULID `gorm:"not null;type:varchar(26);index" json:"owner_id"`

	// DisplayName is the human-facing file name. Not required to be unique.
	DisplayName string `gorm:"not null;size:512" json:"display_name"`

	// StoredPath is the on-disk location of the file.
	StoredPath string `gorm:"not null;size:1024" json:"-"`

	// Status records whether this asset was uploaded or produced.
	Status AssetStatus `gorm:"not null;default:'uploaded';size:20;index" json:"status"`

	// SizeBytes is the file size at catalog time.
	SizeBytes int64 `json:"size_bytes"`
}

// TableName returns the table name for Asset.
func (Asset) TableName() string {
	return "assets"
}

// IsProcessed returns true if this asset is a transcoding output.
func (a *Asset) IsProcessed() bool {
	return a.Status == AssetStatusProcessed
}

// Validate performs basic validation on the asset.
func (a *Asset) Validate() error {
	if a.OwnerID.IsZero() {
		return ErrBadRequest
	}
	if a.DisplayName == "" || a.StoredPath == "" {
		return ErrBadRequest
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the asset and generates a ULID.
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = AssetStatusUploaded
	}
	return a.Validate()
}
