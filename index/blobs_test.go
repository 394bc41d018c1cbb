package index

import "testing"

func TestBlobRoundTrip(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.AddBlob("abc123", 128, "textures/wood.png"); err != nil {
		t.Fatalf("AddBlob: %v", err)
	}

	exists, err := db.BlobExists("abc123")
	if err != nil {
		t.Fatalf("BlobExists: %v", err)
	}
	if !exists {
		t.Error("BlobExists = false, want true")
	}

	hashes, err := db.ListBlobHashes()
	if err != nil {
		t.Fatalf("ListBlobHashes: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != "abc123" {
		t.Errorf("ListBlobHashes = %v, want [abc123]", hashes)
	}

	if err := db.DeleteBlob("abc123"); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}
	exists, err = db.BlobExists("abc123")
	if err != nil {
		t.Fatalf("BlobExists: %v", err)
	}
	if exists {
		t.Error("BlobExists = true after delete, want false")
	}
}

func TestMeshRoundTrip(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.AddMesh("meshhash1"); err != nil {
		t.Fatalf("AddMesh: %v", err)
	}

	exists, err := db.MeshExists("meshhash1")
	if err != nil {
		t.Fatalf("MeshExists: %v", err)
	}
	if !exists {
		t.Error("MeshExists = false, want true")
	}

	hashes, err := db.ListMeshHashes()
	if err != nil {
		t.Fatalf("ListMeshHashes: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != "meshhash1" {
		t.Errorf("ListMeshHashes = %v, want [meshhash1]", hashes)
	}

	if err := db.DeleteMesh("meshhash1"); err != nil {
		t.Fatalf("DeleteMesh: %v", err)
	}
	exists, err = db.MeshExists("meshhash1")
	if err != nil {
		t.Fatalf("MeshExists: %v", err)
	}
	if exists {
		t.Error("MeshExists = true after delete, want false")
	}
}
