package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ListingKind selects which family of listings a reference points into.
type ListingKind string

const (
	KindJob     ListingKind = "job"
	KindPartner ListingKind = "partner"
)

// listingKinds maps each kind to the prefix its statistics live under.
var listingKinds = map[ListingKind]string{
	KindJob:     "job_ads",
	KindPartner: "partner_ads",
}

// ListingKinds returns the registered kinds in a stable order
func ListingKinds() []ListingKind {
	kinds := make([]ListingKind, 0, len(listingKinds))
	for k := range listingKinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseListingKind validates a kind taken from user input
func ParseListingKind(s string) (ListingKind, error) {
	k := ListingKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := listingKinds[k]; !ok {
		return "", fmt.Errorf("unknown listing kind %q: %w", s, apperrors.ErrInvalidListing)
	}
	return k, nil
}

// Prefix is the storage location prefix for the kind
func (k ListingKind) Prefix() string {
	return listingKinds[k]
}

// ListingRef identifies a listing by kind, owner and listing id.
type ListingRef struct {
	Kind      ListingKind `json:"kind"`
	OwnerID   string      `json:"owner_id"`
	ListingID string      `json:"listing_id"`
}

// NewListingRef parses and validates a reference from raw strings
func NewListingRef(kind, ownerID, listingID string) (ListingRef, error) {
	k, err := ParseListingKind(kind)
	if err != nil {
		return ListingRef{}, err
	}
	ref := ListingRef{Kind: k, OwnerID: strings.TrimSpace(ownerID), ListingID: strings.TrimSpace(listingID)}
	return ref, ref.Validate()
}

// Validate checks that every component is present and free of the key separator
func (r ListingRef) Validate() error {
	if _, ok := listingKinds[r.Kind]; !ok {
		return fmt.Errorf("unknown listing kind %q: %w", r.Kind, apperrors.ErrInvalidListing)
	}
	if r.OwnerID == "" || r.ListingID == "" {
		return fmt.Errorf("owner and listing id are required: %w", apperrors.ErrInvalidListing)
	}
	if strings.ContainsAny(r.OwnerID, ":/") || strings.ContainsAny(r.ListingID, ":/") {
		return fmt.Errorf("ids must not contain ':' or '/': %w", apperrors.ErrInvalidListing)
	}
	return nil
}

// Key is the stable storage key, e.g. "job_ads:owner-1:listing-9"
func (r ListingRef) Key() string {
	return r.Kind.Prefix() + ":" + r.OwnerID + ":" + r.ListingID
}

// ParseListingKey reverses Key
func ParseListingKey(key string) (ListingRef, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return ListingRef{}, fmt.Errorf("malformed listing key %q: %w", key, apperrors.ErrInvalidListing)
	}
	for kind, prefix := range listingKinds {
		if prefix == parts[0] {
			ref := ListingRef{Kind: kind, OwnerID: parts[1], ListingID: parts[2]}
			return ref, ref.Validate()
		}
	}
	return ListingRef{}, fmt.Errorf("unknown listing prefix %q: %w", parts[0], apperrors.ErrInvalidListing)
}

func (r ListingRef) String() string {
	return string(r.Kind) + "/" + r.OwnerID + "/" + r.ListingID
}

// Listing is the listing record owned by the listings service. The ledger only
// touches Statistics and StatisticsVersion.
type Listing struct {
	ID        string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Kind      ListingKind `gorm:"type:varchar(16);not null;uniqueIndex:idx_listing_ref" json:"kind"`
	OwnerID   string      `gorm:"type:varchar(128);not null;uniqueIndex:idx_listing_ref" json:"owner_id"`
	ListingID string      `gorm:"type:varchar(128);not null;uniqueIndex:idx_listing_ref" json:"listing_id"`
	Title     string      `gorm:"type:varchar(255)" json:"title"`
	Company   string      `gorm:"type:varchar(255)" json:"company,omitempty"`

	Statistics        datatypes.JSONType[Statistics] `gorm:"not null;default:'{}'" json:"statistics"`
	StatisticsVersion int64                          `gorm:"not null;default:0" json:"statistics_version"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (Listing) TableName() string {
	return "listings"
}

// Ref returns the reference identifying this listing
func (l *Listing) Ref() ListingRef {
	return ListingRef{Kind: l.Kind, OwnerID: l.OwnerID, ListingID: l.ListingID}
}

// Snapshot returns the listing's statistics with zero-state defaults applied
func (l *Listing) Snapshot() Snapshot {
	stats := l.Statistics.Data()
	stats.Normalize()
	return Snapshot{Ref: l.Ref(), Statistics: stats, Version: l.StatisticsVersion}
}

// BeforeCreate assigns an id when the caller did not
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
