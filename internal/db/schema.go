package db

// schemaSQL contains the database schema initialization SQL. The two %d
// placeholders are the embedding dimension for the memory and summary HNSW
// indexes.
const schemaSQL = `
    -- ==========================================================================
    -- MEMORY TABLE (atomic extracted facts/preferences/decisions/mentions)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_kind ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS importance ON memory TYPE float DEFAULT 0.5
        ASSERT $value >= 0.0 AND $value <= 1.0;
    DEFINE FIELD IF NOT EXISTS related_entities ON memory TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding ON memory TYPE array<float> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding_model ON memory TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS source_turn_ids ON memory TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS first_seen ON memory TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS accessed ON memory TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS access_count ON memory TYPE int DEFAULT 0
        ASSERT $value >= 0;
    DEFINE FIELD IF NOT EXISTS version ON memory TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS retired_at ON memory TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS memory_owner ON memory FIELDS owner_kind, owner_id, kind;
    DEFINE INDEX IF NOT EXISTS memory_embedding ON memory FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- SUMMARY TABLE (immutable consolidations of contiguous turn ranges)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS summary SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_kind ON summary TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON summary TYPE string;
    DEFINE FIELD IF NOT EXISTS summary_text ON summary TYPE string;
    DEFINE FIELD IF NOT EXISTS turn_start ON summary TYPE int ASSERT $value >= 1;
    DEFINE FIELD IF NOT EXISTS turn_end ON summary TYPE int;
    DEFINE FIELD IF NOT EXISTS turn_count ON summary TYPE int ASSERT $value >= 1;
    DEFINE FIELD IF NOT EXISTS key_topics ON summary TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS entities_discussed ON summary TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS decisions_made ON summary TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding ON summary TYPE array<float> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding_model ON summary TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS first_turn_at ON summary TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS last_turn_at ON summary TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS created ON summary TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS retired_at ON summary TYPE option<datetime>;
    -- Unique range start per owner: a retried or racing consolidation cannot
    -- create an overlapping range.
    DEFINE FIELD IF NOT EXISTS range_key ON summary VALUE
        string::concat(owner_kind, ":", owner_id, ":", <string>turn_start);
    DEFINE INDEX IF NOT EXISTS summary_range ON summary FIELDS range_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS summary_owner ON summary FIELDS owner_kind, owner_id;
    DEFINE INDEX IF NOT EXISTS summary_embedding ON summary FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- TURN TABLE (raw conversation turns, dense 1-based seq per owner)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS turn SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_kind ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS seq ON turn TYPE int ASSERT $value >= 1;
    DEFINE FIELD IF NOT EXISTS role ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON turn TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS seq_key ON turn VALUE
        string::concat(owner_kind, ":", owner_id, ":", <string>seq);
    DEFINE INDEX IF NOT EXISTS turn_seq ON turn FIELDS seq_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS turn_owner ON turn FIELDS owner_kind, owner_id;

    -- ==========================================================================
    -- LEASE TABLE (per-owner consolidation exclusivity, reclaimable on expiry)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS lease SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_kind ON lease TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON lease TYPE string;
    DEFINE FIELD IF NOT EXISTS holder ON lease TYPE string;
    DEFINE FIELD IF NOT EXISTS expires ON lease TYPE datetime;
    DEFINE FIELD IF NOT EXISTS owner_key ON lease VALUE
        string::concat(owner_kind, ":", owner_id);
    DEFINE INDEX IF NOT EXISTS lease_owner ON lease FIELDS owner_key UNIQUE;
`
