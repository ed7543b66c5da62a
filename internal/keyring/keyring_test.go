package keyring

import (
	"context"
	"testing"
)

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	return New(t.TempDir())
}

func TestGenerateAndLoad(t *testing.T) {
	kr := newTestKeyring(t)
	ctx := context.Background()

	key, err := kr.Generate(ctx, "alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(key.PublicKey) != PublicKeyHexLength {
		t.Errorf("PublicKey length = %d, want %d", len(key.PublicKey), PublicKeyHexLength)
	}

	byAlias, err := kr.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load by alias: %v", err)
	}
	if byAlias.PublicKey != key.PublicKey {
		t.Error("alias resolved to a different key")
	}

	byHex, err := kr.Load(ctx, key.PublicKey)
	if err != nil {
		t.Fatalf("Load by hex: %v", err)
	}
	if byHex.PublicKey != key.PublicKey {
		t.Error("hex resolved to a different key")
	}
}

func TestLoadUnknownAlias(t *testing.T) {
	kr := newTestKeyring(t)
	if _, err := kr.Load(context.Background(), "nope"); err == nil {
		t.Error("Load succeeded for unknown alias")
	}
}

func TestLoadOrGenerate(t *testing.T) {
	kr := newTestKeyring(t)
	ctx := context.Background()

	first, err := kr.LoadOrGenerate(ctx, "bot")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	second, err := kr.LoadOrGenerate(ctx, "bot")
	if err != nil {
		t.Fatalf("LoadOrGenerate again: %v", err)
	}
	if first.PublicKey != second.PublicKey {
		t.Error("LoadOrGenerate regenerated an existing key")
	}
}

func TestDefaultKey(t *testing.T) {
	kr := newTestKeyring(t)
	ctx := context.Background()

	key, _ := kr.Generate(ctx, "main")
	if err := kr.SetDefault("main"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	def, err := kr.LoadDefault(ctx)
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if def.PublicKey != key.PublicKey {
		t.Error("default resolved to a different key")
	}
}

func TestSetDefaultUnknownAlias(t *testing.T) {
	kr := newTestKeyring(t)
	kr.mustGenerate(t, "a")
	if err := kr.SetDefault("missing"); err == nil {
		t.Error("SetDefault succeeded for unknown alias")
	}
}

func (kr *Keyring) mustGenerate(t *testing.T, alias string) *Key {
	t.Helper()
	key, err := kr.Generate(context.Background(), alias)
	if err != nil {
		t.Fatalf("Generate(%s): %v", alias, err)
	}
	return key
}

func TestList(t *testing.T) {
	kr := newTestKeyring(t)
	kr.mustGenerate(t, "one")
	kr.mustGenerate(t, "two")
	_ = kr.SetDefault("one")

	infos, err := kr.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d keys, want 2", len(infos))
	}

	defaults := 0
	for _, info := range infos {
		if info.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("%d default keys, want 1", defaults)
	}
}

func TestLoadSigner(t *testing.T) {
	kr := newTestKeyring(t)
	signer, err := kr.LoadSigner(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadSigner: %v", err)
	}

	sig, err := signer.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig.Bytes) == 0 {
		t.Error("empty signature")
	}
}
