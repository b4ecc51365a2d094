package upgrade

// RequiredSchemaVersion is the migration version this binary expects.
// Bump it together with every new file under migrations/.
const RequiredSchemaVersion uint = 3
