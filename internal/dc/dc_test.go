package dc

import "testing"

const avatarSchema = `
dclass Avatar {
    string name required broadcast;
    uint32 health required ram db;
    uint8[4] tags ownsend;
    blob inventory clsend ram;
}
`

func TestLoadSourcesAndFieldLookup(t *testing.T) {
	reg, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	class, ok := reg.ClassByName("Avatar")
	if !ok {
		t.Fatalf("expected class Avatar to be registered")
	}
	if class.Number != 0 {
		t.Fatalf("expected first class to be numbered 0, got %d", class.Number)
	}

	byNumber, ok := reg.ClassByNumber(0)
	if !ok || byNumber != class {
		t.Fatalf("ClassByNumber(0) did not return the Avatar class")
	}

	name, ok := class.FieldByName("name")
	if !ok {
		t.Fatalf("expected field 'name'")
	}
	if !name.Keywords.Required || !name.Keywords.Broadcast {
		t.Fatalf("expected name to be required+broadcast, got %+v", name.Keywords)
	}

	health, ok := class.FieldByIndex(1)
	if !ok || health.Name != "health" {
		t.Fatalf("expected field index 1 to be health, got %+v", health)
	}
	if !health.Keywords.Ram || !health.Keywords.DB {
		t.Fatalf("expected health to be ram+db, got %+v", health.Keywords)
	}

	required := class.RequiredFields()
	if len(required) != 2 || required[0].Name != "name" || required[1].Name != "health" {
		t.Fatalf("unexpected required field order: %+v", required)
	}
}

func TestFieldPackUnpackRoundTrip(t *testing.T) {
	reg, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	class, _ := reg.ClassByName("Avatar")
	name, _ := class.FieldByName("name")

	packed, err := name.Pack("alice")
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	value, err := name.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if value != "alice" {
		t.Fatalf("round-trip mismatch: got %v", value)
	}
}

func TestFieldPackUnpackArray(t *testing.T) {
	reg, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	class, _ := reg.ClassByName("Avatar")
	tags, _ := class.FieldByName("tags")

	packed, err := tags.Pack([]any{uint64(1), uint64(2), uint64(3), uint64(4)})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	value, err := tags.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	items, ok := value.([]any)
	if !ok || len(items) != 4 {
		t.Fatalf("expected 4-element array, got %v", value)
	}
}

func TestFieldValidateRejectsTrailingBytes(t *testing.T) {
	reg, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	class, _ := reg.ClassByName("Avatar")
	health, _ := class.FieldByName("health")

	packed, err := health.Pack(uint64(42))
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	packed = append(packed, 0xFF) // trailing garbage byte
	if err := health.Validate(packed); err == nil {
		t.Fatalf("expected Validate to reject trailing bytes")
	}
}

func TestRegistryHashStableAcrossLoadsOfSameSource(t *testing.T) {
	reg1, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	reg2, err := LoadSources(map[string]string{"avatar.dc": avatarSchema})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if reg1.Hash() != reg2.Hash() {
		t.Fatalf("expected identical schema source to hash identically, got %d vs %d", reg1.Hash(), reg2.Hash())
	}
}

func TestUnknownFieldTypeRejected(t *testing.T) {
	_, err := LoadSources(map[string]string{"bad.dc": "dclass Bad {\n  nope field required;\n}\n"})
	if err == nil {
		t.Fatalf("expected an error for an unknown field type")
	}
}

func TestLoadSourcesIsDeterministicAcrossMultipleFiles(t *testing.T) {
	sources := map[string]string{
		"avatar.dc": avatarSchema,
		"pet.dc":    "dclass Pet {\n    string name required;\n}\n",
		"item.dc":   "dclass Item {\n    uint32 count required;\n}\n",
	}

	var firstHash uint32
	var firstAvatar, firstPet, firstItem uint16
	for i := 0; i < 10; i++ {
		reg, err := LoadSources(sources)
		if err != nil {
			t.Fatalf("LoadSources: %v", err)
		}
		avatar, _ := reg.ClassByName("Avatar")
		pet, _ := reg.ClassByName("Pet")
		item, _ := reg.ClassByName("Item")
		if i == 0 {
			firstHash = reg.Hash()
			firstAvatar, firstPet, firstItem = avatar.Number, pet.Number, item.Number
			continue
		}
		if reg.Hash() != firstHash {
			t.Fatalf("run %d: hash %d differs from first run's %d", i, reg.Hash(), firstHash)
		}
		if avatar.Number != firstAvatar || pet.Number != firstPet || item.Number != firstItem {
			t.Fatalf("run %d: class numbering (%d, %d, %d) differs from first run's (%d, %d, %d)",
				i, avatar.Number, pet.Number, item.Number, firstAvatar, firstPet, firstItem)
		}
	}
}
