package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/optionstracker/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}

	if err := CreateTables(DB); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	migrateOptionsPositions()

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// CreateTables applies the schema to the given handle. Split out from InitDB so
// tests can run against their own in-memory databases.
func CreateTables(db *sql.DB) error {
	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		amount REAL NOT NULL DEFAULT 0,
		fees REAL NOT NULL DEFAULT 0,
		account TEXT NOT NULL DEFAULT '',
		option_type TEXT,
		strike_price REAL,
		expiration_date TEXT,
		position_id INTEGER,
		options_position_id INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'Manual',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(position_id) REFERENCES positions(id),
		FOREIGN KEY(options_position_id) REFERENCES options_positions(id),
		UNIQUE(symbol, transaction_date, quantity, price, source)
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		average_cost REAL NOT NULL DEFAULT 0,
		current_price REAL NOT NULL DEFAULT 0,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		account TEXT NOT NULL DEFAULT '',
		UNIQUE(symbol, account)
	);

	CREATE TABLE IF NOT EXISTS options_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		underlying_symbol TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strategy TEXT NOT NULL,
		strike_price REAL NOT NULL,
		expiration_date TEXT NOT NULL,
		contracts INTEGER NOT NULL,
		premium_per_contract REAL NOT NULL DEFAULT 0,
		current_price REAL NOT NULL DEFAULT 0,
		open_date TEXT NOT NULL,
		close_date TEXT,
		status TEXT NOT NULL DEFAULT 'Open',
		account TEXT NOT NULL DEFAULT '',
		underlying_position_id INTEGER,
		rolled_from_id INTEGER UNIQUE,
		rolled_to_id INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(underlying_position_id) REFERENCES positions(id),
		FOREIGN KEY(rolled_from_id) REFERENCES options_positions(id),
		FOREIGN KEY(rolled_to_id) REFERENCES options_positions(id)
	);

	CREATE TABLE IF NOT EXISTS roll_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_options_position_id INTEGER NOT NULL,
		to_options_position_id INTEGER NOT NULL,
		roll_date TEXT NOT NULL,
		net_credit REAL NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(from_options_position_id) REFERENCES options_positions(id),
		FOREIGN KEY(to_options_position_id) REFERENCES options_positions(id)
	);
	`

	_, err := db.Exec(createTableStatement)
	return err
}

// migrateOptionsPositions adds the roll-chain columns to databases created
// before roll tracking existed.
func migrateOptionsPositions() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='options_positions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'options_positions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'options_positions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(options_positions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'options_positions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'options_positions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'options_positions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'options_positions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'options_positions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'options_positions': %v", err)
		}
		return
	}

	if _, ok := columnExists["rolled_from_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE options_positions ADD COLUMN rolled_from_id INTEGER UNIQUE")
		if err != nil {
			logger.L.Error("Error adding 'rolled_from_id' column to 'options_positions' table", "error", err)
		} else {
			logger.L.Info("Added 'rolled_from_id' column to 'options_positions' table")
		}
	}
	if _, ok := columnExists["rolled_to_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE options_positions ADD COLUMN rolled_to_id INTEGER")
		if err != nil {
			logger.L.Error("Error adding 'rolled_to_id' column to 'options_positions' table", "error", err)
		} else {
			logger.L.Info("Added 'rolled_to_id' column to 'options_positions' table")
		}
	}
}
