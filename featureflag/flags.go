package featureflag

type Flag string

const (
	// FlagDisableAsyncGeneration makes sessions generate neighbor tiles on
	// the connection goroutine instead of the producer workers.
	FlagDisableAsyncGeneration Flag = "DISABLE_ASYNC_GENERATION"

	// FlagDisableCatalog skips opening the generated tile catalog.
	FlagDisableCatalog Flag = "DISABLE_CATALOG"

	// FlagDisableContactDedup reports every contact to the entry detector,
	// including repeated contacts with the current tile.
	FlagDisableContactDedup Flag = "DISABLE_CONTACT_DEDUP"
)

// Known returns the flags the server understands.
func Known() []Flag {
	return []Flag{
		FlagDisableAsyncGeneration,
		FlagDisableCatalog,
		FlagDisableContactDedup,
	}
}
