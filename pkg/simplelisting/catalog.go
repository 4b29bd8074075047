package simplelisting

// Kind names of the default catalog.
const (
	KindCategory       = "Category"
	KindRealEstate     = "RealEstate"
	KindPropertyType   = "PropertyType"
	KindPostType       = "PostType"
	KindLead           = "Lead"
	KindMedia          = "Media"
	KindPlan           = "Plan"
	KindCharacteristic = "Characteristic"
)

// DefaultAdminRole is granted create-for-others and mutate-any rights when a
// kind configures no roles of its own.
const DefaultAdminRole = "admin"

// Catalog is an ordered set of kinds addressable by name or collection.
type Catalog struct {
	kinds []Kind
}

// NewCatalog creates a catalog from kinds.
func NewCatalog(kinds ...Kind) *Catalog {
	return &Catalog{kinds: kinds}
}

// DefaultCatalog returns the marketplace kinds.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		CategoryKind(),
		RealEstateKind(),
		PropertyTypeKind(),
		PostTypeKind(),
		LeadKind(),
		MediaKind(),
		PlanKind(),
		CharacteristicKind(),
	)
}

// Lookup finds a kind by name or collection.
func (c *Catalog) Lookup(name string) (Kind, bool) {
	for _, k := range c.kinds {
		if k.Name == name || k.Collection == name {
			return k, true
		}
	}
	return Kind{}, false
}

// Kinds returns the kinds in catalog order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

func mediaList() Field { return Field{Name: "media", Type: FieldRefList} }

func slug(required bool) Field {
	return Field{Name: "slug", Type: FieldString, Lowercase: true, Required: required}
}

func CategoryKind() Kind {
	return Kind{
		Name:       KindCategory,
		Collection: "categories",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			slug(true),
			{Name: "description", Type: FieldString},
			mediaList(),
		},
		UniqueFields: []string{"slug", "name"},
		LinkedFields: []LinkedField{{Field: "media", Target: KindMedia}},
		SlugField:    "slug",
		NaturalKey:   "slug",
		MediaField:   "media",
	}
}

func RealEstateKind() Kind {
	return Kind{
		Name:       KindRealEstate,
		Collection: "realEstates",
		Fields: []Field{
			{Name: "title", Type: FieldString, Required: true},
			{Name: "content", Type: FieldString},
			{Name: "description", Type: FieldString},
			{Name: "price", Type: FieldNumber},
			{Name: "location", Type: FieldString},
			{Name: "thumbnail", Type: FieldString},
			mediaList(),
			slug(false),
			{Name: "status", Type: FieldString},
			{Name: "sqft", Type: FieldNumber},
			{Name: "bedrooms", Type: FieldNumber},
			{Name: "bathrooms", Type: FieldNumber},
			{Name: "garage", Type: FieldNumber},
			{Name: "yearBuilt", Type: FieldNumber},
			{Name: "characteristics", Type: FieldRefList},
			{Name: "propertyType", Type: FieldRef, Required: true},
			{Name: "category", Type: FieldRef, Required: true},
		},
		UniqueFields: []string{"slug"},
		LinkedFields: []LinkedField{
			{Field: "category", Target: KindCategory},
			{Field: "propertyType", Target: KindPropertyType},
			{Field: "characteristics", Target: KindCharacteristic},
			{Field: "media", Target: KindMedia},
		},
		SlugField:  "slug",
		NaturalKey: "slug",
		MediaField: "media",
	}
}

func PropertyTypeKind() Kind {
	return Kind{
		Name:       KindPropertyType,
		Collection: "property-types",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			slug(true),
			{Name: "description", Type: FieldString},
			{Name: "count", Type: FieldNumber},
			mediaList(),
		},
		UniqueFields: []string{"slug", "name"},
		LinkedFields: []LinkedField{{Field: "media", Target: KindMedia}},
		SlugField:    "slug",
		NaturalKey:   "slug",
		MediaField:   "media",
	}
}

func PostTypeKind() Kind {
	return Kind{
		Name:       KindPostType,
		Collection: "post-types",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			slug(false),
			{Name: "description", Type: FieldString},
			{Name: "count", Type: FieldNumber},
			mediaList(),
		},
		UniqueFields: []string{"slug"},
		LinkedFields: []LinkedField{{Field: "media", Target: KindMedia}},
		SlugField:    "slug",
		NaturalKey:   "slug",
		MediaField:   "media",
	}
}

func LeadKind() Kind {
	return Kind{
		Name:       KindLead,
		Collection: "leads",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "email", Type: FieldString, Required: true, Lowercase: true},
			{Name: "phone", Type: FieldString},
			{Name: "message", Type: FieldString, Required: true},
			{Name: "realEstate", Type: FieldRef},
		},
	}
}

func MediaKind() Kind {
	return Kind{
		Name:       KindMedia,
		Collection: "media",
		Fields: []Field{
			{Name: "fileName", Type: FieldString, Required: true},
			{Name: "mediaType", Type: FieldString, Enum: []string{
				string(MediaImage), string(MediaVideo), string(MediaAudio), string(MediaFile), string(MediaUnknown),
			}},
			{Name: "altText", Type: FieldString},
			slug(false),
			{Name: "url", Type: FieldString, Required: true},
		},
		UniqueFields: []string{"url", "slug"},
		SlugField:    "slug",
		NaturalKey:   "fileName",
	}
}

func PlanKind() Kind {
	zero := 0.0
	return Kind{
		Name:       KindPlan,
		Collection: "plans",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			slug(true),
			{Name: "description", Type: FieldString},
			{Name: "price", Type: FieldNumber, Required: true, Min: &zero},
			{Name: "features", Type: FieldList},
			{Name: "billingCycle", Type: FieldString, Enum: []string{"monthly", "yearly", "lifetime"}},
			{Name: "count", Type: FieldNumber},
		},
		UniqueFields: []string{"name", "slug"},
		SlugField:    "slug",
		NaturalKey:   "slug",
	}
}

func CharacteristicKind() Kind {
	return Kind{
		Name:       KindCharacteristic,
		Collection: "characteristics",
		Fields: []Field{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "description", Type: FieldString},
			slug(false),
			mediaList(),
		},
		UniqueFields: []string{"slug"},
		LinkedFields: []LinkedField{{Field: "media", Target: KindMedia}},
		SlugField:    "slug",
		NaturalKey:   "slug",
		MediaField:   "media",
	}
}
