package database

// MySQLTableDDL 返回 MySQL 建表语句
func MySQLTableDDL(table string) string {
	for _, t := range mysqlTables {
		if t.name == table {
			return t.ddl
		}
	}
	return ""
}
