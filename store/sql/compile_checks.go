package sqlstore

import "github.com/boxyhq/go-dsync/core"

var (
	_ core.EventStore         = (*EventStore)(nil)
	_ core.Locker             = (*LockStore)(nil)
	_ core.WebhookEventLogger = (*WebhookEventLogStore)(nil)
	_ core.DirectoryResolver  = (*CachedDirectoryResolver)(nil)
)
