package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache 权限缓存
type PermissionCache struct {
	cache *sync.Map
	ttl   time.Duration
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: &sync.Map{},
		ttl:   ttl,
	}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return false, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		// 已过期，删除
		c.cache.Delete(key)
		return false, false
	}

	return entry.value, true
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	entry := &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.cache.Store(key, entry)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

// permissionKey 缓存 key
func permissionKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// CachedOpenFGAClient 带缓存的权限检查
// 只缓存检查结果,写入关系时清空缓存
type CachedOpenFGAClient struct {
	client Authorizer
	cache  *PermissionCache
}

// NewCachedOpenFGAClient 创建带缓存的权限检查
func NewCachedOpenFGAClient(client Authorizer, cache *PermissionCache) *CachedOpenFGAClient {
	return &CachedOpenFGAClient{
		client: client,
		cache:  cache,
	}
}

// CheckPermission 检查权限（带缓存）
func (c *CachedOpenFGAClient) CheckPermission(
	ctx context.Context,
	userID string,
	relation string,
	objectType string,
	objectID string,
) (bool, error) {
	cacheKey := permissionKey(userID, relation, objectType, objectID)

	if value, found := c.cache.Get(cacheKey); found {
		return value, nil
	}

	// 缓存未命中，查询 OpenFGA
	allowed, err := c.client.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}

	c.cache.Set(cacheKey, allowed)

	return allowed, nil
}

// WriteTuple 写入关系元组
// 对象之间的关系会影响间接权限,写入后清空全部缓存
func (c *CachedOpenFGAClient) WriteTuple(ctx context.Context, user string, relation string, object string) error {
	writer, ok := c.client.(RelationWriter)
	if !ok {
		return fmt.Errorf("authorizer %T cannot write relations", c.client)
	}
	if err := writer.WriteTuple(ctx, user, relation, object); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}
