package updater

import (
	"encoding/json"
)

// BuildDescriptor identifies one downloadable runtime build. The metadata
// endpoint ships additional fields alongside buildid and target_alias; those
// are carried opaque so the persisted record mirrors the remote document.
type BuildDescriptor struct {
	BuildID     string
	TargetAlias string

	extra map[string]json.RawMessage
}

// Equal implements the up-to-date rule: both identifying fields must match
// exactly. A field present on one side and absent on the other is a mismatch.
func (d BuildDescriptor) Equal(other BuildDescriptor) bool {
	return d.BuildID == other.BuildID && d.TargetAlias == other.TargetAlias
}

// IsZero reports whether the descriptor carries no identifying information,
// i.e. no build was recorded or fetched.
func (d BuildDescriptor) IsZero() bool {
	return d.BuildID == "" && d.TargetAlias == "" && len(d.extra) == 0
}

func (d *BuildDescriptor) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["buildid"]; ok {
		if err := json.Unmarshal(raw, &d.BuildID); err != nil {
			return err
		}
		delete(fields, "buildid")
	}
	if raw, ok := fields["target_alias"]; ok {
		if err := json.Unmarshal(raw, &d.TargetAlias); err != nil {
			return err
		}
		delete(fields, "target_alias")
	}

	d.extra = fields
	return nil
}

func (d BuildDescriptor) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for k, v := range d.extra {
		fields[k] = v
	}

	buildID, err := json.Marshal(d.BuildID)
	if err != nil {
		return nil, err
	}
	fields["buildid"] = buildID

	alias, err := json.Marshal(d.TargetAlias)
	if err != nil {
		return nil, err
	}
	fields["target_alias"] = alias

	return json.Marshal(fields)
}
