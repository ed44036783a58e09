package session

import "testing"

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 100
	e := New(cfg, nil, nil, nil, nil)
	e.AddTokens("s1", 150)
	e.MarkCheckpointProcessed("s1", 1)

	data, err := e.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	restored := New(DefaultConfig(), nil, nil, nil, nil)
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	st := restored.Stats()
	if st.Sessions != 1 {
		t.Fatalf("Sessions = %d, want 1", st.Sessions)
	}
	if st.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", st.TotalTokens)
	}
	if st.CheckpointsProcessed != 1 {
		t.Errorf("CheckpointsProcessed = %d, want 1", st.CheckpointsProcessed)
	}
}
