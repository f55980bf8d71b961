package advisorydb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ZhaoYaoJing/internal/model"
	"ZhaoYaoJing/internal/utils"
	"ZhaoYaoJing/internal/version"

	_ "github.com/mattn/go-sqlite3"
)

// Cache 本地通告缓存，sqlite落盘
// 刷新时整库重建后原子替换旧文件，绝不原地逐条修补
type Cache struct {
	path   string
	logger *utils.Logger
}

func NewCache(path string) *Cache {
	return &Cache{
		path:   path,
		logger: utils.NewLogger("advisory-cache"),
	}
}

const cacheSchema = `
CREATE TABLE advisories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	advisory_id TEXT NOT NULL,
	package TEXT NOT NULL,
	affected TEXT NOT NULL,
	patched TEXT,
	severity TEXT,
	aliases TEXT,
	summary TEXT,
	url TEXT,
	withdrawn TEXT
);

CREATE INDEX idx_package ON advisories(package);

CREATE TABLE cache_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	fetched_at TEXT NOT NULL,
	source TEXT
);
`

// Save 把通告记录连同新鲜度时间戳写入缓存
// 先写临时库再rename覆盖，保证缓存文件要么是旧的完整版本要么是新的完整版本
func (c *Cache) Save(records []model.AdvisoryRecord, fetchedAt time.Time, source string) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %v", err)
	}

	tmpPath := c.path + ".tmp"
	// 残留的临时文件直接清掉
	_ = os.Remove(tmpPath)

	db, err := sql.Open("sqlite3", tmpPath)
	if err != nil {
		return fmt.Errorf("创建临时缓存库失败: %v", err)
	}

	if err := c.writeAll(db, records, fetchedAt, source); err != nil {
		db.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if err := db.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("关闭临时缓存库失败: %v", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("替换缓存文件失败: %v", err)
	}

	c.logger.Debug("缓存已更新: %d 条通告, 时间戳 %s", len(records), fetchedAt.Format(time.RFC3339))
	return nil
}

func (c *Cache) writeAll(db *sql.DB, records []model.AdvisoryRecord, fetchedAt time.Time, source string) error {
	if _, err := db.Exec(cacheSchema); err != nil {
		return fmt.Errorf("初始化缓存表失败: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO advisories
		(advisory_id, package, affected, patched, severity, aliases, summary, url, withdrawn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		aliases, err := json.Marshal(r.Aliases)
		if err != nil {
			return err
		}

		withdrawn := ""
		if r.Withdrawn != nil {
			withdrawn = r.Withdrawn.Format(time.RFC3339)
		}

		if _, err := stmt.Exec(
			r.ID, r.Package, r.Affected.String(), r.Patched.String(),
			r.Severity.String(), string(aliases), r.Summary, r.URL, withdrawn,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO cache_meta (id, fetched_at, source)
		VALUES (1, ?, ?)`,
		fetchedAt.Format(time.RFC3339Nano), source,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Load 从缓存读出全部通告记录和落盘时的新鲜度时间戳
func (c *Cache) Load() ([]model.AdvisoryRecord, time.Time, error) {
	if _, err := os.Stat(c.path); err != nil {
		return nil, time.Time{}, fmt.Errorf("缓存文件不存在: %v", err)
	}

	db, err := sql.Open("sqlite3", c.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("打开缓存库失败: %v", err)
	}
	defer db.Close()

	var fetchedRaw string
	if err := db.QueryRow("SELECT fetched_at FROM cache_meta WHERE id = 1").Scan(&fetchedRaw); err != nil {
		return nil, time.Time{}, fmt.Errorf("读取缓存元数据失败: %v", err)
	}

	fetchedAt, err := time.Parse(time.RFC3339Nano, fetchedRaw)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("缓存时间戳非法: %v", err)
	}

	rows, err := db.Query(`
		SELECT advisory_id, package, affected, patched, severity, aliases, summary, url, withdrawn
		FROM advisories
		ORDER BY package, advisory_id`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("读取缓存记录失败: %v", err)
	}
	defer rows.Close()

	var records []model.AdvisoryRecord
	for rows.Next() {
		var advisoryID, pkg, affectedRaw string
		var patchedRaw, severityRaw, aliasesRaw, summary, url, withdrawnRaw sql.NullString

		if err := rows.Scan(&advisoryID, &pkg, &affectedRaw, &patchedRaw,
			&severityRaw, &aliasesRaw, &summary, &url, &withdrawnRaw); err != nil {
			c.logger.Warn("跳过无法读取的缓存行: %v", err)
			continue
		}

		affected, err := version.ParseRange(affectedRaw)
		if err != nil {
			c.logger.Warn("跳过affected范围损坏的缓存行 %s: %v", advisoryID, err)
			continue
		}

		record := model.AdvisoryRecord{
			ID:       advisoryID,
			Package:  pkg,
			Affected: affected,
			Severity: model.ParseSeverity(severityRaw.String),
			Summary:  summary.String,
			URL:      url.String,
		}

		if patchedRaw.String != "" {
			patched, err := version.ParseRange(patchedRaw.String)
			if err != nil {
				c.logger.Warn("跳过patched范围损坏的缓存行 %s: %v", advisoryID, err)
				continue
			}
			record.Patched = patched
		}

		if aliasesRaw.String != "" {
			if err := json.Unmarshal([]byte(aliasesRaw.String), &record.Aliases); err != nil {
				c.logger.Debug("缓存行 %s 的aliases解析失败: %v", advisoryID, err)
			}
		}

		if withdrawnRaw.String != "" {
			ts, err := time.Parse(time.RFC3339, withdrawnRaw.String)
			if err == nil {
				record.Withdrawn = &ts
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("遍历缓存记录失败: %v", err)
	}

	c.logger.Debug("从缓存读出 %d 条通告", len(records))
	return records, fetchedAt, nil
}
