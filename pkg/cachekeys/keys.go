// Package cachekeys holds the key schema shared by every instance of the service.
package cachekeys

import "fmt"

func PostKey(postID string) string {
	return "post:id:" + postID
}

func UserPostsKey(userID string) string {
	return "user:posts:" + userID
}

func LikeKey(userID, postID string) string {
	return fmt.Sprintf("like:user:%s:post:%s", userID, postID)
}

func UserByUsernameKey(username string) string {
	return "user:username:" + username
}

func UserByIDKey(userID string) string {
	return "user:id:" + userID
}

func UserPublicKey(userID string) string {
	return "user:public:" + userID
}

func PostLockKey(postID string) string {
	return "lock:post:" + postID
}

func LikeLockKey(userID, postID string) string {
	return fmt.Sprintf("lock:like:%s:%s", userID, postID)
}
