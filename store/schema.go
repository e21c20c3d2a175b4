package store

// Staging tables mirror the CSV artifacts; the core tables are keyed by the
// deterministic record IDs so reloading a batch updates rows in place.
const schema = `
CREATE TABLE IF NOT EXISTS staging_emails (
    id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    project_id TEXT,
    case_id TEXT,
    message_id TEXT,
    in_reply_to TEXT,
    references_header TEXT,
    subject TEXT,
    from_header TEXT,
    to_header TEXT,
    cc_header TEXT,
    bcc_header TEXT,
    date_header TEXT,
    date_epoch INTEGER,
    sender_email TEXT,
    sender_name TEXT,
    body_text TEXT,
    body_html TEXT,
    source_path TEXT,
    source_index INTEGER,
    ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS staging_attachments (
    id TEXT NOT NULL,
    email_message_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    project_id TEXT,
    case_id TEXT,
    filename TEXT,
    content_type TEXT,
    file_size_bytes INTEGER,
    storage_bucket TEXT,
    storage_key TEXT,
    attachment_hash TEXT,
    is_inline INTEGER,
    content_id TEXT,
    source_path TEXT,
    ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    project_id TEXT,
    case_id TEXT,
    message_id TEXT,
    in_reply_to TEXT,
    references_header TEXT,
    subject TEXT,
    from_header TEXT,
    to_header TEXT,
    cc_header TEXT,
    bcc_header TEXT,
    date_header TEXT,
    date_epoch INTEGER,
    sender_email TEXT,
    sender_name TEXT,
    body_text TEXT,
    body_html TEXT,
    source_path TEXT,
    source_index INTEGER,
    has_attachments INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    email_message_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    project_id TEXT,
    case_id TEXT,
    filename TEXT,
    content_type TEXT,
    file_size_bytes INTEGER,
    storage_bucket TEXT,
    storage_key TEXT,
    attachment_hash TEXT,
    is_inline INTEGER NOT NULL DEFAULT 0,
    content_id TEXT,
    source_path TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_staging_emails_batch ON staging_emails(batch_id);
CREATE INDEX IF NOT EXISTS idx_staging_attachments_batch ON staging_attachments(batch_id);
CREATE INDEX IF NOT EXISTS idx_emails_batch ON emails(batch_id);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_email ON attachments(email_message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_hash ON attachments(attachment_hash);
`
