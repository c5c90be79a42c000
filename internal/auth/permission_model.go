package auth

// 对象类型和关系,与 GetPermissionModel 保持一致
const (
	ObjectCharity   = "charity"
	ObjectProgramme = "programme"

	RelationEditor   = "editor"
	RelationViewer   = "viewer"
	RelationReviewer = "reviewer"
)

// GetPermissionModel 获取 OpenFGA 权限模型定义
// 慈善机构成员编辑本机构的报告,资助项目的评审人审批所有报告
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type programme
  relations
    define reviewer: [user]
    define viewer: [user] or reviewer

type charity
  relations
    define programme: [programme]
    define member: [user]
    define editor: [user] or member
    define viewer: [user] or editor or reviewer from programme`
}
