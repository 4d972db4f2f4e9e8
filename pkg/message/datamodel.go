package message

// DataModel is an introspectable parameter/result record. Concrete
// DataModels are ordinary Go structs; ToMap/FromMap give the runtime a
// reflection-free round-trip for the two cases the orchestrator needs most
// often (tool arguments coming in, structured output going out) while
// pkg/schema supplies the reflection-driven path for everything else.
type DataModel interface {
	// ToMap renders the model as a plain map, ready for JSON encoding.
	ToMap() map[string]any
	// FromMap populates the model from a plain map. Unknown keys are
	// deposited in Extras() if the model exposes one.
	FromMap(m map[string]any) error
}

// ExtrasCarrier is implemented by DataModels that keep unrecognised input
// keys instead of discarding them, so that fromMap(m).toMap() == m can hold
// even when m has fields the static schema does not declare.
type ExtrasCarrier interface {
	SetExtras(map[string]any)
	GetExtras() map[string]any
}

// DataModelArray is an ordered, polymorphic collection of DataModels. The
// discriminator field (default "type") selects which concrete DataModel
// constructor to use for each element when decoding.
type DataModelArray struct {
	Discriminator string
	allowed       map[string]func() DataModel
	items         []DataModel
}

// NewDataModelArray builds a DataModelArray from already-constructed
// DataModel values. Using this builder sidesteps the historical
// count==1-and-is-list ambiguity entirely: callers never pass a
// raw []any here.
func NewDataModelArray(items ...DataModel) *DataModelArray {
	return &DataModelArray{Discriminator: "type", items: items}
}

// RegisterVariant associates a discriminator value with a constructor for
// the concrete DataModel it decodes to.
func (a *DataModelArray) RegisterVariant(discriminatorValue string, ctor func() DataModel) {
	if a.allowed == nil {
		a.allowed = map[string]func() DataModel{}
	}
	a.allowed[discriminatorValue] = ctor
}

// Items returns the ordered element list.
func (a *DataModelArray) Items() []DataModel { return a.items }

// FromSlice decodes items from an arbitrary JSON-decoded slice value.
//
// Preserves the source behaviour flagged in spec §9 Open Question 2: when
// raw has exactly one element and that element is itself a slice, it is
// treated as the actual item list (a single level of accidental nesting
// collapses). This exists only to decode older serialised payloads that
// relied on the heuristic; new code should call NewDataModelArray instead.
func (a *DataModelArray) FromSlice(raw []any) error {
	if len(raw) == 1 {
		if nested, ok := raw[0].([]any); ok {
			raw = nested
		}
	}
	items := make([]DataModel, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		disc := a.Discriminator
		if disc == "" {
			disc = "type"
		}
		tag, _ := m[disc].(string)
		ctor, ok := a.allowed[tag]
		if !ok {
			continue
		}
		item := ctor()
		if err := item.FromMap(m); err != nil {
			return err
		}
		items = append(items, item)
	}
	a.items = items
	return nil
}

// ToSlice renders every element back to its map form, in order.
func (a *DataModelArray) ToSlice() []map[string]any {
	out := make([]map[string]any, len(a.items))
	for i, item := range a.items {
		out[i] = item.ToMap()
	}
	return out
}
